package smooth

// System ties together a layer's float, double, and filter-coefficient
// smoothing banks so callers only deal with one prepare/process pair per
// layer instead of three.
type System struct {
	Floats  *FloatBank
	Doubles *DoubleBank
	Filters *FilterBank

	blockSize int
}

// NewSystem preallocates every bank for the given slot counts and the
// largest block size the host will ever request. Reallocating for a
// larger block later is handled lazily by the banks themselves, but
// sizing correctly up front keeps the audio thread allocation-free.
func NewSystem(floatSlots, doubleSlots, filterSlots, maxBlockSize int) *System {
	return &System{
		Floats:    NewFloatBank(floatSlots, maxBlockSize),
		Doubles:   NewDoubleBank(doubleSlots, maxBlockSize),
		Filters:   NewFilterBank(filterSlots, maxBlockSize),
		blockSize: maxBlockSize,
	}
}

// Prepare is called once when the host's block size or sample rate
// changes, before any ProcessBlock call at the new size.
func (s *System) Prepare(maxBlockSize int) {
	s.blockSize = maxBlockSize
}

// ProcessBlock advances all three banks by n samples (n must not exceed
// the size passed to NewSystem/Prepare).
func (s *System) ProcessBlock(n int) {
	s.Floats.ProcessBlock(n)
	s.Doubles.ProcessBlock(n)
	s.Filters.ProcessBlock(n)
}

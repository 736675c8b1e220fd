package pipeline

// ScalablePipeline is a pipeline whose pipe sequence can be replaced
// between runs. The pipes slice is used as given, not copied: changing an
// element in place changes the pipe the next run uses. The number of lines
// is fixed.
type ScalablePipeline struct {
	*Pipeline
}

// NewScalable creates a scalable pipeline over pipes.
func NewScalable(lines int, pipes []Pipe) (*ScalablePipeline, error) {
	return NewScalableWithConfig(Config{Lines: lines, Pipes: pipes})
}

// NewScalableWithConfig creates a scalable pipeline from config.
func NewScalableWithConfig(config Config) (*ScalablePipeline, error) {
	p, err := NewWithConfig(config)
	if err != nil {
		return nil, err
	}
	// share the caller's slice instead of the copy
	p.pipes = config.Pipes
	return &ScalablePipeline{Pipeline: p}, nil
}

// Reset restarts token ids at zero and, when pipes are given, replaces the
// pipe sequence. It panics if a run is in flight.
func (s *ScalablePipeline) Reset(pipes ...Pipe) error {
	if len(pipes) == 0 {
		s.Pipeline.Reset()
		return nil
	}
	if err := validate(s.lines, pipes); err != nil {
		return err
	}
	s.mustBeIdle()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.setPipes(pipes)
	s.resetLocked()
	s.countReset()
	return nil
}

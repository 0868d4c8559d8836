package engine

// ProgressFunc receives completion percentage and a human-readable status
// message at fixed pipeline boundaries. A nil ProgressFunc is legal and
// reports nothing.
type ProgressFunc func(percentage int, message string)

func (f ProgressFunc) report(percentage int, message string) {
	if f != nil {
		f(percentage, message)
	}
}

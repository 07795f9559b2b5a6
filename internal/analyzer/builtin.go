package analyzer

// Builtin returns the external linters shipped with reviewgraph, in the order
// they are tried for each language.
func Builtin(runner *Runner) []Analyzer {
	return []Analyzer{
		NewPylint(runner),
		NewFlake8(runner),
		NewESLint(runner),
		NewStaticcheck(runner),
		NewShellCheck(runner),
		NewHadolint(runner),
	}
}

// NewDefaultRegistry registers the built-in linters plus any extra analyzers.
func NewDefaultRegistry(runner *Runner, extra ...Analyzer) (*Registry, error) {
	reg := NewRegistry()
	for _, a := range append(Builtin(runner), extra...) {
		if err := reg.Register(a); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

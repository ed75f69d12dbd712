package api

import "gopkg.in/yaml.v3"

// Opt carries an optional request parameter, distinguishing "not given" from
// an explicit zero value. The completions endpoint treats logprobs=false and
// logprobs unset differently, so falsiness checks are not enough.
type Opt[T any] struct {
	value T
	set   bool
}

// Some returns an Opt holding v.
func Some[T any](v T) Opt[T] {
	return Opt[T]{value: v, set: true}
}

// Get returns the value and whether it was given.
func (o Opt[T]) Get() (T, bool) {
	return o.value, o.set
}

// IsSet reports whether a value was given.
func (o Opt[T]) IsSet() bool {
	return o.set
}

// Or returns the value when given, otherwise fallback.
func (o Opt[T]) Or(fallback T) T {
	if o.set {
		return o.value
	}
	return fallback
}

// UnmarshalYAML marks the option as given when the key appears in a config
// document. Absent keys leave the zero Opt, which is "not given".
func (o *Opt[T]) UnmarshalYAML(node *yaml.Node) error {
	var v T
	if err := node.Decode(&v); err != nil {
		return err
	}
	o.value = v
	o.set = true
	return nil
}

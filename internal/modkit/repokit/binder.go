package repokit

// Binder binds a query set to a specific Queryer, e.g. the one a transaction hands out
type Binder[T any] interface {
	Bind(Queryer) T
}

// BindFunc lets you create a Binder from a function
type BindFunc[T any] func(Queryer) T

// Bind panics on a nil Queryer, then calls the function
func (f BindFunc[T]) Bind(q Queryer) T {
	if q == nil {
		panic("repokit: nil Queryer")
	}
	return f(q)
}

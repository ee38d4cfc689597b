package tensor

// Ownership states whether the receiver of a tensor must release it.
type Ownership int

const (
	// Borrowed tensors belong to someone else; the receiver must not release them.
	Borrowed Ownership = iota
	// Owned tensors carry a reference the receiver must release exactly once.
	Owned
)

// String returns "owned" or "borrowed".
func (o Ownership) String() string {
	if o == Owned {
		return "owned"
	}
	return "borrowed"
}

// Handle is a tensor tagged with the release obligation of its receiver.
type Handle struct {
	t   *RawTensor
	own Ownership
}

// OwnedHandle wraps a tensor whose reference passes to the receiver.
func OwnedHandle(t *RawTensor) Handle {
	return Handle{t: t, own: Owned}
}

// BorrowedHandle wraps a tensor the receiver may read but not release.
func BorrowedHandle(t *RawTensor) Handle {
	return Handle{t: t, own: Borrowed}
}

// Tensor returns the wrapped tensor.
func (h Handle) Tensor() *RawTensor {
	return h.t
}

// Ownership returns the release obligation.
func (h Handle) Ownership() Ownership {
	return h.own
}

// Owned reports whether the receiver must release the tensor.
func (h Handle) Owned() bool {
	return h.own == Owned
}

// Release releases an owned tensor and does nothing for a borrowed one.
func (h Handle) Release() {
	if h.own == Owned && h.t != nil {
		h.t.Release()
	}
}

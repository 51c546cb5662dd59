package error

// GenericError is implemented by errors that know their HTTP representation.
// The recovery middleware uses it to map panics to proper API responses.
type GenericError interface {
	Error() string
	ErrCode() string
	StatusCode() int
}

package messaging

// None is a payload type for exchanges that carry no request or response
// data.
type None struct{}

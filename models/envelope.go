package models

// Envelope is the uniform response shape for every dispatch and every
// handler-management call: a boolean status plus either the handler's return
// value (success) or a human-readable cause (failure). No internal error
// type crosses this boundary.
type Envelope struct {
	Status bool        `json:"status"`
	Data   interface{} `json:"data,omitempty"`
}

// Success returns a success envelope without a payload.
func Success() Envelope {
	return Envelope{Status: true}
}

// SuccessWithData returns a success envelope carrying the handler's result.
func SuccessWithData(data interface{}) Envelope {
	return Envelope{Status: true, Data: data}
}

// Failure returns a failure envelope with a human-readable cause.
func Failure(cause string) Envelope {
	return Envelope{Status: false, Data: cause}
}

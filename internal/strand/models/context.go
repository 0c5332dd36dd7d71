package models

// AuthContext describes one authentication attempt. It is captured when a
// challenge starts and its canonical encoding is part of the signed
// challenge message.
type AuthContext struct {
	Channel    string            `cbor:"1,keyasint" json:"channel,omitempty"`
	Action     string            `cbor:"2,keyasint" json:"action,omitempty"`
	ClientIP   string            `cbor:"3,keyasint" json:"client_ip,omitempty"`
	UserAgent  string            `cbor:"4,keyasint" json:"user_agent,omitempty"`
	StepUp     bool              `cbor:"5,keyasint" json:"step_up,omitempty"`
	Attributes map[string]string `cbor:"6,keyasint" json:"attributes,omitempty"`
}

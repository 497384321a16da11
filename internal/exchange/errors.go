package exchange

import "errors"

// Sentinel errors shared by the exchange services. Callers match them
// with errors.Is; wrapping sites add the failing URL or token context.
var (
	// ErrFailedCommunication indicates a transport-level failure talking
	// to an issuer, verifier or authorization server.
	ErrFailedCommunication = errors.New("communication with remote party failed")

	// ErrFailedDeserializing indicates a remote payload that could not be
	// decoded into the expected shape.
	ErrFailedDeserializing = errors.New("failed to deserialize remote payload")

	// ErrFailedSerializing indicates a local value that could not be
	// encoded for the wire.
	ErrFailedSerializing = errors.New("failed to serialize payload")

	// ErrParse indicates a malformed JWT or URL.
	ErrParse = errors.New("failed to parse")

	// ErrUnsupportedResponseType is returned when an authorization request
	// asks for a response type the wallet does not implement.
	ErrUnsupportedResponseType = errors.New("unsupported response_type")

	// ErrUnsupportedGrantType is returned when a credential offer carries
	// no grant the wallet can execute.
	ErrUnsupportedGrantType = errors.New("unsupported grant type")

	// ErrEntityNotFound indicates the holder record is absent from the
	// broker even after an attempted create.
	ErrEntityNotFound = errors.New("user entity not found")

	// ErrEmptySelection indicates a presentation was requested over zero
	// credentials.
	ErrEmptySelection = errors.New("no verifiable credentials selected")

	// ErrNoSuchContent indicates scanned content matching none of the
	// known exchange entry points.
	ErrNoSuchContent = errors.New("content does not match any known exchange")
)

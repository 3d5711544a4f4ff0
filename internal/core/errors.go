package core

import "errors"

var (
	// ErrAuth means the supplied token did not resolve to an identity.
	ErrAuth = errors.New("invalid token")
	// ErrStageNotFound means no stage record exists for the given id.
	ErrStageNotFound = errors.New("could not find stage")
	// ErrWrongSecret means the supplied stage secret did not match.
	ErrWrongSecret = errors.New("wrong password")
	// ErrDuplicateParticipant guards against double-join on one connection.
	ErrDuplicateParticipant = errors.New("participant already joined")
	// ErrUnknownTransport means the transport id is not owned by the caller.
	ErrUnknownTransport = errors.New("unknown transport")
	// ErrUnknownConsumer means the consumer id is not owned by the caller.
	ErrUnknownConsumer = errors.New("unknown consumer")
)

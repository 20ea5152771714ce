package utils

import (
	"fmt"

	"github.com/google/uuid"
)

// Identifiers are UUID-backed. Viewer ids in particular must be
// collision-resistant: they key the broadcaster's connection map and a clash
// would cross-wire two viewers' negotiations.

func GenerateStreamID() string {
	return fmt.Sprintf("stream_%s", uuid.NewString())
}

func GenerateViewerID() string {
	return fmt.Sprintf("viewer_%s", uuid.NewString())
}

func GenerateBroadcasterID() string {
	return fmt.Sprintf("broadcaster_%s", uuid.NewString())
}

func GenerateSessionID() string {
	return fmt.Sprintf("session_%s", uuid.NewString())
}

func GenerateRequestID() string {
	return fmt.Sprintf("req_%s", uuid.NewString())
}

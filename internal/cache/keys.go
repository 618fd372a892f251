package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:status:%s", jobID)
}

func JobResultKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:result:%s", jobID)
}

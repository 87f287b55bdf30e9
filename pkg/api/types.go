package api

import (
	"time"

	"github.com/cardsdata/formquery/pkg/query"
	"github.com/cardsdata/formquery/pkg/repository"
)

// UnknownError is the error field of every failed query response.
const UnknownError = "Unknown error"

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

type StatsResponse struct {
	Repository *repository.Stats `json:"repository"`
	Settings   query.Settings    `json:"settings"`
}

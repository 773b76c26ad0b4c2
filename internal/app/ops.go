package app

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

type sweepResponse struct {
	Examined      int `json:"examined"`
	Cancelled     int `json:"cancelled"`
	SeatsReleased int `json:"seats_released"`
	Failed        int `json:"failed"`
}

// triggerReaperSweep runs one reaper sweep immediately. The optional
// minutes query parameter overrides the configured abandonment timeout, so
// an operator can reclaim seats from a stuck batch without waiting for the
// schedule.
func (app *application) triggerReaperSweep(w http.ResponseWriter, r *http.Request) {
	olderThan := app.config.reaper.timeout

	if minutesParam := r.URL.Query().Get("minutes"); minutesParam != "" {
		minutes, err := strconv.Atoi(minutesParam)
		if err != nil || minutes < 0 {
			app.badRequestResponse(w, r, fmt.Errorf("invalid minutes parameter"))
			return
		}
		olderThan = time.Duration(minutes) * time.Minute
	}

	report, err := app.reaper.Sweep(r.Context(), olderThan)
	if err != nil {
		app.serverErrorResponse(w, r, err)
		return
	}

	resp := sweepResponse{
		Examined:      report.Examined,
		Cancelled:     report.Cancelled,
		SeatsReleased: report.SeatsReleased,
		Failed:        report.Failed,
	}

	app.writeJSON(w, http.StatusOK, resp, nil)
}

type brokerHealthResponse struct {
	Status string `json:"status"`
}

func (app *application) getBrokerHealth(w http.ResponseWriter, r *http.Request) {
	err := app.broker.Ping(r.Context())
	if err != nil {
		app.logError(r, err)
		app.writeJSON(w, http.StatusServiceUnavailable, brokerHealthResponse{Status: "DOWN"}, nil)
		return
	}

	app.writeJSON(w, http.StatusOK, brokerHealthResponse{Status: "UP"}, nil)
}

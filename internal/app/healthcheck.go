package app

import (
	"net/http"
)

type systemInfo struct {
	Version     string `json:"version"`
	Environment string `json:"environment"`
}

type healthcheckResponse struct {
	Status     string     `json:"status"`
	SystemInfo systemInfo `json:"system_info"`
}

func (app *application) getHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthcheckResponse{
		Status: "UP",
		SystemInfo: systemInfo{
			Version:     version,
			Environment: app.config.env,
		},
	}

	app.writeJSON(w, http.StatusOK, resp, nil)
}

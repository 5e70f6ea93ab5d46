package mmdevice

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"mmshutter/pkg/metrics"
)

// Global transaction counter
var txCounter atomic.Int32

type baseResponse struct {
	ClientTransactionID int    `json:"ClientTransactionID"`
	ServerTransactionID int    `json:"ServerTransactionID"`
	ErrorNumber         int    `json:"ErrorNumber"`
	ErrorMessage        string `json:"ErrorMessage"`
	Value               any    `json:"Value,omitempty"`
}

type handlerFunc func(r *http.Request) (any, error)

// handle wraps fn into the JSON envelope. Errors are reported through
// ErrorNumber with the host status code of the error.
func handle(fn handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		txID, err := getClientTxID(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		response := baseResponse{
			ServerTransactionID: int(txCounter.Add(1)),
			ClientTransactionID: txID,
		}

		value, err := fn(r)
		if err != nil {
			response.ErrorNumber = Code(err)
			response.ErrorMessage = err.Error()
		} else {
			response.Value = value
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(response); err != nil {
			metrics.IncError(metrics.ErrHTTPResponse)
			log.Errorf("Error writing response: %v", err)
		}
	})
}

// formValue looks a parameter up ignoring the case of its name.
func formValue(r *http.Request, field string) (string, bool) {
	for param, value := range r.Form {
		if strings.EqualFold(param, field) && len(value) > 0 {
			return value[0], true
		}
	}
	return "", false
}

// getClientTxID obtains the optional client transaction ID.
func getClientTxID(r *http.Request) (int, error) {
	value, ok := formValue(r, "ClientTransactionID")
	if !ok {
		return 0, nil
	}
	id, err := strconv.Atoi(value)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("ClientTransactionID must be a non-negative integer")
	}
	return id, nil
}

func parseRequest(r *http.Request, field string) (string, error) {
	value, ok := formValue(r, field)
	if !ok {
		return "", fmt.Errorf("%w: missing %s", ErrInvalidInputParam, field)
	}
	return value, nil
}

func parseBoolRequest(r *http.Request, field string) (bool, error) {
	value, err := parseRequest(r, field)
	if err != nil {
		return false, err
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrInvalidInputParam, field, err)
	}
	return b, nil
}

func parseFloatRequest(r *http.Request, field string) (float64, error) {
	value, err := parseRequest(r, field)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidInputParam, field, err)
	}
	return f, nil
}

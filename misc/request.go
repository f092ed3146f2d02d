package misc

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"
)

var httpClient = &http.Client{
	Timeout: 30 * time.Second,
}

func Request(method, endpoint, reqData string, respData interface{}) error {
	var r *http.Request
	if reqData == "" {
		r, _ = http.NewRequest(method, endpoint, nil)
	} else {
		r, _ = http.NewRequest(method, endpoint, strings.NewReader(reqData))
	}
	r.Header.Add("Content-Type", "application/json")

	resp, err := httpClient.Do(r)
	if err != nil {
		log.Println("Error when hitting:", endpoint, err)
		return err
	}

	defer resp.Body.Close()

	if respData == nil {
		return nil
	}

	if err = json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		log.Println("Error when unmarshalling from:", endpoint, err)
		return err
	}
	return nil
}

// AuthRequest is Request with a bearer token attached. Used by the
// secret store adapter which fronts an authenticated vault.
func AuthRequest(method, endpoint, token, reqData string, respData interface{}) error {
	var r *http.Request
	if reqData == "" {
		r, _ = http.NewRequest(method, endpoint, nil)
	} else {
		r, _ = http.NewRequest(method, endpoint, strings.NewReader(reqData))
	}
	r.Header.Add("Content-Type", "application/json")
	r.Header.Add("Authorization", "Bearer "+token)

	resp, err := httpClient.Do(r)
	if err != nil {
		log.Println("Error when hitting:", endpoint, err)
		return err
	}

	defer resp.Body.Close()

	if respData == nil {
		return nil
	}

	if err = json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		log.Println("Error when unmarshalling from:", endpoint, err)
		return err
	}
	return nil
}

package misc

type Status struct {
	Status string `json:"status"`
	Id     string `json:"id,omitempty"`
	Error  string `json:"error,omitempty"`
}

func StatusOK(id string) *Status {
	return &Status{Status: "success", Id: id}
}

func StatusErr(msg string) *Status {
	return &Status{Status: "error", Error: msg}
}

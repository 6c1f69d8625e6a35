package transport

import (
	"encoding/json"
	"net/http"
)

func jsonDecode(req *http.Request, out any) error {
	return json.NewDecoder(req.Body).Decode(out)
}

package handlers

import (
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/streamforge/vodflow/log"
	"github.com/streamforge/vodflow/pipeline"
)

type VodflowHandlersCollection struct {
	Coordinator *pipeline.Coordinator
	Store       pipeline.VideoStore
}

func (d *VodflowHandlersCollection) Ok() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		if _, err := io.WriteString(w, "OK"); err != nil {
			log.LogNoVideoID("Failed to write HTTP response for " + req.URL.RawPath)
		}
	}
}

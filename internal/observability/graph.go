package observability

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/rafaeljc/arbiter/internal/decision"
)

// nodeView is the JSON shape of a node in the debug endpoints.
type nodeView struct {
	Name       string   `json:"name"`
	Experiment bool     `json:"experiment"`
	Cases      []string `json:"cases"`
	OnSuccess  string   `json:"on_success,omitempty"`
	OnFailure  string   `json:"on_failure,omitempty"`
}

func viewOf(n *decision.Node) nodeView {
	v := nodeView{Name: n.Name(), Experiment: n.IsExperiment(), Cases: []string{}}
	for _, c := range n.Cases() {
		v.Cases = append(v.Cases, c.Name)
	}
	if next := n.SuccessNode(); next != nil {
		v.OnSuccess = next.Name()
	}
	if next := n.FailureNode(); next != nil {
		v.OnFailure = next.Name()
	}
	return v
}

func (s *Server) graphDOT(w http.ResponseWriter, r *http.Request) {
	dot, err := decision.RenderDOT(s.graph)
	if err != nil {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "text/vnd.graphviz; charset=utf-8")
	_, _ = w.Write([]byte(dot))
}

func (s *Server) graphExperiments(w http.ResponseWriter, r *http.Request) {
	type experimentView struct {
		ID      int64  `json:"id"`
		Name    string `json:"name"`
		Version int    `json:"version"`
	}
	out := []experimentView{}
	for _, n := range decision.FindExperimentNodes(s.graph) {
		def := n.Experiment().Definition()
		out = append(out, experimentView{ID: def.ID, Name: def.Name, Version: def.Version})
	}
	render.JSON(w, r, out)
}

func (s *Server) graphNodes(w http.ResponseWriter, r *http.Request) {
	found := decision.FindByName(s.graph, chi.URLParam(r, "name"))
	if len(found) == 0 {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, map[string]string{"error": "node not found"})
		return
	}
	out := make([]nodeView, 0, len(found))
	for _, n := range found {
		out = append(out, viewOf(n))
	}
	render.JSON(w, r, out)
}

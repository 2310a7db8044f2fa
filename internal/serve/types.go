package serve

import (
	"time"

	"github.com/agnvar/agnvar/internal/state"
)

// StateResponse is the persisted run state as served on /api/status.
type StateResponse struct {
	SourcePath  string               `json:"source_path"`
	ChunkSize   int                  `json:"chunk_size"`
	LastUpdated time.Time            `json:"last_updated"`
	Counts      map[state.Status]int `json:"counts"`
	Chunks      []ChunkStateResponse `json:"chunks"`
}

// ChunkStateResponse is one chunk of the persisted run state.
type ChunkStateResponse struct {
	Index  int          `json:"index"`
	Status state.Status `json:"status"`
	Rows   int          `json:"rows,omitempty"`
	Joined int          `json:"joined,omitempty"`
	Output string       `json:"output,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// ChunkFile describes a persisted chunk on disk.
type ChunkFile struct {
	Index    int       `json:"index"`
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// PlotLink points at a rendered plot.
type PlotLink struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

func newStateResponse(st *state.State) StateResponse {
	resp := StateResponse{
		SourcePath:  st.SourcePath,
		ChunkSize:   st.ChunkSize,
		LastUpdated: st.LastUpdated,
		Counts:      st.Counts(),
	}
	for _, idx := range st.Indices() {
		cs := st.Get(idx)
		resp.Chunks = append(resp.Chunks, ChunkStateResponse{
			Index:  idx,
			Status: cs.Status,
			Rows:   cs.Rows,
			Joined: cs.Joined,
			Output: cs.Output,
			Error:  cs.Error,
		})
	}
	return resp
}

package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/richinex/aecheck/render"
	"github.com/richinex/aecheck/storage"
	"github.com/richinex/aecheck/workflow"
)

type modelInfo struct {
	Index    int    `json:"index"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Name     string `json:"name"`
}

type stepInfo struct {
	Title         string            `json:"title"`
	Category      workflow.Category `json:"category"`
	Uses          []string          `json:"uses"`
	DefaultModel  int               `json:"defaultModel"`
	DefaultPrompt string            `json:"defaultPrompt"`
}

func (s *Server) index(c *gin.Context) {
	page, err := indexPage()
	if err != nil {
		c.String(http.StatusInternalServerError, "failed to load index.html")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

func (s *Server) models(c *gin.Context) {
	all := s.deps.Catalog.All()
	out := make([]modelInfo, len(all))
	for i, m := range all {
		out[i] = modelInfo{Index: i, Provider: m.Provider.String(), Model: m.ID, Name: m.Name}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) steps(c *gin.Context) {
	steps := s.deps.Table.Steps()
	out := make([]stepInfo, len(steps))
	for i, st := range steps {
		uses := st.Uses
		if uses == nil {
			uses = []string{}
		}
		out[i] = stepInfo{
			Title:         st.Title,
			Category:      st.Category,
			Uses:          uses,
			DefaultModel:  s.deps.Defaults.ModelIndex(st.Title),
			DefaultPrompt: s.deps.Defaults.Prompt(st.Title),
		}
	}
	c.JSON(http.StatusOK, gin.H{"steps": out, "schema": s.deps.Defaults.Schema})
}

func (s *Server) samples(c *gin.Context) {
	samples := s.deps.Settings.Samples
	if samples == nil {
		samples = []string{}
	}
	c.JSON(http.StatusOK, samples)
}

// loadForm returns the saved form with defaults filled in, or the defaults.
func (s *Server) loadForm(c *gin.Context) {
	sess := currentSession(c)
	form, found, err := s.deps.Forms.LoadForm(c.Request.Context(), sess.id)
	if err != nil {
		klog.Errorf("load form for session %s: %v", sess.id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load form"})
		return
	}
	form.Config = form.Config.WithDefaults(s.deps.Defaults)
	c.JSON(http.StatusOK, gin.H{"form": form, "saved": found})
}

func (s *Server) saveForm(c *gin.Context) {
	var form storage.Form
	if err := c.ShouldBindJSON(&form); err != nil {
		bindError(c, err)
		return
	}
	if form.Sample < -1 || form.Sample >= len(s.deps.Settings.Samples) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sample index out of range"})
		return
	}

	sess := currentSession(c)
	if err := s.deps.Forms.SaveForm(c.Request.Context(), sess.id, form); err != nil {
		klog.Errorf("save form for session %s: %v", sess.id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save form"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) deleteForm(c *gin.Context) {
	sess := currentSession(c)
	if err := s.deps.Forms.DeleteForm(c.Request.Context(), sess.id); err != nil {
		klog.Errorf("delete form for session %s: %v", sess.id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete form"})
		return
	}
	c.Status(http.StatusNoContent)
}

type runOutcome struct {
	state workflow.State
	err   error
}

// run executes the workflow and streams "render" events carrying the
// results fragment, then one "done" event with the final state.
func (s *Server) run(c *gin.Context) {
	var req workflow.Config
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if strings.TrimSpace(req.Narrative) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "narrative is required"})
		return
	}
	cfg := req.WithDefaults(s.deps.Defaults)

	sess := currentSession(c)
	sink := newFrameSink()
	layout := render.NewLayout(s.deps.Table).WithSchema(cfg.Schema)
	throttle := render.NewThrottle(s.deps.Settings.Workflow.RenderInterval)
	renderer := render.NewRenderer(layout, throttle, func(v render.View) {
		frame, err := s.html.String(v)
		if err != nil {
			klog.Errorf("render results: %v", err)
			return
		}
		sink.Put(frame)
	})

	job := workflow.Job{
		Config:   cfg,
		Store:    sess.store,
		Streamer: s.deps.Transport(c.Request),
		Renderer: renderer,
	}

	ctx := c.Request.Context()
	done := make(chan runOutcome, 1)
	go func() {
		state, err := sess.executor.Execute(ctx, job)
		done <- runOutcome{state: state, err: err}
	}()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flushFrame := func() {
		if frame, ok := sink.Take(); ok {
			c.SSEvent("render", gin.H{"html": frame})
			c.Writer.Flush()
		}
	}

	for {
		select {
		case <-sink.Ready():
			flushFrame()
		case out := <-done:
			flushFrame()
			payload := gin.H{"state": out.state.String()}
			if out.err != nil && !errors.Is(out.err, ctx.Err()) {
				payload["error"] = out.err.Error()
			}
			c.SSEvent("done", payload)
			c.Writer.Flush()
			klog.V(1).Infof("session %s run finished: %s", sess.id, out.state)
			return
		}
	}
}

func (s *Server) cancel(c *gin.Context) {
	currentSession(c).executor.Cancel()
	c.Status(http.StatusAccepted)
}

// results reports the session's run state and current results.
func (s *Server) results(c *gin.Context) {
	sess := currentSession(c)
	state, current := sess.executor.State()
	c.JSON(http.StatusOK, gin.H{
		"state":   state.String(),
		"current": current,
		"results": sess.store.Snapshot(),
	})
}

package rewards

import (
	"net/http"
	"time"

	"miniapp-rewards/pkg/errutil"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	store   *Store
	trigger *Trigger
}

func NewHandler(store *Store, trigger *Trigger) *Handler {
	return &Handler{store: store, trigger: trigger}
}

func (h *Handler) Register(r gin.IRouter) {
	v1 := r.Group("/v1")
	v1.GET("/tasks", h.ListTasks)
	v1.GET("/tasks/:id", h.GetTask)
	v1.POST("/tasks/:id/start", h.StartTask)
	v1.POST("/tasks/:id/verify", h.VerifyTask)
	v1.POST("/tasks/:id/engage", h.EngageTask)
	v1.GET("/attempts/current", h.CurrentAttempt)
	v1.POST("/signals/return", h.FireReturn)
	v1.GET("/stats", h.GetStats)
}

// TaskView is a task with the flags a UI derives its state from.
type TaskView struct {
	Task
	Blocked   bool `json:"blocked"`
	Claimable bool `json:"claimable"`
}

func (h *Handler) view(t Task) TaskView {
	blocked := t.Blocked(h.store.Policy().MaxAttempts)
	return TaskView{Task: t, Blocked: blocked, Claimable: !t.Completed && !blocked}
}

type ResultView struct {
	Path     Path   `json:"path"`
	Verified bool   `json:"verified"`
	Notice   Notice `json:"notice"`
	Error    string `json:"error,omitempty"`
}

type AttemptView struct {
	ID        string      `json:"id"`
	TaskID    string      `json:"task_id"`
	StartedAt time.Time   `json:"started_at"`
	Notice    Notice      `json:"notice"`
	Resolved  bool        `json:"resolved"`
	Result    *ResultView `json:"result,omitempty"`
}

func attemptView(a *Attempt) AttemptView {
	v := AttemptView{
		ID:        a.ID.String(),
		TaskID:    a.TaskID,
		StartedAt: a.StartedAt.UTC(),
		Notice:    a.Notice,
	}
	if r, ok := a.Result(); ok {
		v.Resolved = true
		v.Result = &ResultView{Path: r.Path, Verified: r.Verified, Notice: r.Notice}
		if r.Err != nil {
			v.Result.Error = r.Err.Error()
		}
	}
	return v
}

func (h *Handler) ListTasks(c *gin.Context) {
	tasks := h.store.Tasks()
	out := make([]TaskView, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, h.view(t))
	}
	c.JSON(http.StatusOK, gin.H{"tasks": out})
}

func (h *Handler) GetTask(c *gin.Context) {
	t, err := h.store.Task(c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, h.view(t))
}

func (h *Handler) StartTask(c *gin.Context) {
	id := c.Param("id")
	if err := h.store.Start(c.Request.Context(), id); err != nil {
		_ = c.Error(err)
		return
	}

	t, err := h.store.Task(id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, h.view(t))
}

func (h *Handler) VerifyTask(c *gin.Context) {
	id := c.Param("id")
	verified, err := h.store.Verify(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	t, err := h.store.Task(id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"verified": verified,
		"task":     h.view(t),
		"stats":    h.store.Stats(),
	})
}

func (h *Handler) EngageTask(c *gin.Context) {
	id := c.Param("id")
	a, err := h.trigger.Engage(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	t, err := h.store.Task(id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	code := http.StatusAccepted
	if _, resolved := a.Result(); resolved {
		code = http.StatusOK
	}
	c.JSON(code, gin.H{
		"attempt": attemptView(a),
		"url":     t.URL,
	})
}

func (h *Handler) CurrentAttempt(c *gin.Context) {
	a := h.trigger.Current()
	if a == nil {
		_ = c.Error(errutil.NotFound("no attempt has been engaged", nil))
		return
	}
	c.JSON(http.StatusOK, attemptView(a))
}

func (h *Handler) FireReturn(c *gin.Context) {
	h.trigger.Signal().Fire()
	c.Status(http.StatusAccepted)
}

func (h *Handler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Stats())
}

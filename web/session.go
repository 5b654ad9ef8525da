package web

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/richinex/aecheck/workflow"
)

const (
	sessionCookie = "aecheck_session"
	sessionKey    = "session"
	cookieMaxAge  = 30 * 24 * time.Hour
	// Idle sessions drop their executor and results after this long; the
	// saved form outlives them.
	sessionIdle = 24 * time.Hour
)

// session is one browser's executor and result store.
type session struct {
	id       string
	executor *workflow.Executor
	store    *workflow.Store
	lastSeen time.Time
}

type sessions struct {
	mu          sync.Mutex
	byID        map[string]*session
	newExecutor func() *workflow.Executor
	now         func() time.Time
}

func newSessions(newExecutor func() *workflow.Executor) *sessions {
	return &sessions{
		byID:        make(map[string]*session),
		newExecutor: newExecutor,
		now:         time.Now,
	}
}

// middleware attaches the caller's session, issuing a cookie on first visit.
func (s *sessions) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(sessionCookie)
		if err != nil || !validSessionID(id) {
			id = uuid.New().String()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(sessionCookie, id, int(cookieMaxAge.Seconds()), "/", "", false, true)
		}
		c.Set(sessionKey, s.get(id))
		c.Next()
	}
}

func (s *sessions) get(id string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if sess, ok := s.byID[id]; ok {
		sess.lastSeen = now
		return sess
	}

	s.sweep(now)
	sess := &session{
		id:       id,
		executor: s.newExecutor(),
		store:    workflow.NewStore(),
		lastSeen: now,
	}
	s.byID[id] = sess
	return sess
}

// sweep drops idle sessions that are not running. Caller holds mu.
func (s *sessions) sweep(now time.Time) {
	for id, sess := range s.byID {
		if now.Sub(sess.lastSeen) < sessionIdle {
			continue
		}
		if state, _ := sess.executor.State(); state == workflow.StateRunning {
			continue
		}
		delete(s.byID, id)
		klog.V(3).Infof("session %s expired", id)
	}
}

func (s *sessions) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func (s *sessions) cancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.byID {
		sess.executor.Cancel()
	}
}

func currentSession(c *gin.Context) *session {
	return c.MustGet(sessionKey).(*session)
}

func validSessionID(id string) bool {
	parsed, err := uuid.Parse(id)
	return err == nil && parsed.String() == id
}

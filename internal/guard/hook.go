package guard

import (
	"sync"

	"github.com/xela07ax/aegis-guard/internal/domain"
)

// MonitorHook вызывается на каждом финализированном вердикте.
// На запрещающих вердиктах (BLOCKED, KILLED, DENIED, TIMEOUT) ненулевая
// ошибка хука ПОДМЕНЯЕТ стандартную типизированную ошибку — так внешний
// монитор может вернуть агенту собственное объяснение отказа. На
// разрешающих вердиктах возврат хука игнорируется: наблюдатель не может
// отменить уже разрешенное действие.
type MonitorHook func(agent, action string, verdict domain.Verdict) error

// hookSlot — один глобальный для шлюза слот хука под RWMutex:
// чтение на каждом вердикте, запись — редкая (установка при старте).
type hookSlot struct {
	mu   sync.RWMutex
	hook MonitorHook
}

func (s *hookSlot) set(h MonitorHook) {
	s.mu.Lock()
	s.hook = h
	s.mu.Unlock()
}

func (s *hookSlot) get() MonitorHook {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hook
}

package domain

// Verdict — финальный исход проверки одной попытки действия.
type Verdict string

const (
	VerdictAllowed Verdict = "ALLOWED" // Политика разрешила, действие исполнено
	VerdictBlocked Verdict = "BLOCKED" // Жесткий запрет политикой или отказ оператора
	VerdictKilled  Verdict = "KILLED"  // Агент на паузе (kill-switch)
	VerdictReview  Verdict = "REVIEW"  // Неизвестное действие, создан запрос оператору
	VerdictTimeout Verdict = "TIMEOUT" // Оператор не успел решить — отказ по умолчанию

	// Статусы решений оператора. В аудит они попадают как детали,
	// в ApprovalRequest — как терминальные состояния.
	VerdictApproved Verdict = "APPROVED"
	VerdictDenied   Verdict = "DENIED"
)

// Severity маппит вердикт в уровень для дашборда.
// Используется фронтом для раскраски строк журнала.
func (v Verdict) Severity() string {
	switch v {
	case VerdictAllowed, VerdictApproved:
		return "success"
	case VerdictBlocked, VerdictDenied, VerdictTimeout:
		return "failure"
	case VerdictKilled:
		return "critical"
	case VerdictReview:
		return "warning"
	default:
		return "info"
	}
}

// Terminal сообщает, исполняет ли шлюз действие после этого вердикта
// или это промежуточное состояние ожидания.
func (v Verdict) Terminal() bool {
	return v != VerdictReview
}

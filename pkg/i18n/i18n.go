package i18n

import (
	"reflect"
	"sync"
)

// Language type
type Language string

const (
	LangEN Language = "en"
	LangKO Language = "ko"
)

// Messages holds all translatable strings
type Messages struct {
	// System
	Starting           string
	ConfigLoaded       string
	UsingDBPath        string
	ServerListening    string
	HealthListening    string
	ShuttingDown       string
	DryRunMode         string
	ConfigLoadFailed   string
	DBInitFailed       string
	DBMigrationsFailed string
	KeyringFailed      string
	APIServerError     string

	// Bots
	BotsSynced     string
	BotsSyncFailed string

	// Scheduler
	SchedulerStarted string
	JobSkipped       string

	// Notifications
	OrderPlaced   string
	OrderFailed   string
	ForcedExit    string
	TradeResolved string
	ReconSummary  string

	// Strategy labels
	StrategyExtremeFlip  string
	StrategyDropNFlip    string
	StrategyBBRSI        string
	StrategyRSIMACD      string
	StrategyBBMACD       string
	StrategyConservative string
	StrategyModerate     string
	StrategyAggressive   string
	ReasonLossManagement string
	ReasonProfitTaking   string
	ReasonTimeoutSell    string
}

var (
	currentLang Language = LangEN
	mu          sync.RWMutex
	messages    *Messages
)

// English messages
var messagesEN = Messages{
	Starting:           "Starting signal engine...",
	ConfigLoaded:       "Config loaded (Port: %s)",
	UsingDBPath:        "Using DB path: %s",
	ServerListening:    "Status server listening on :%s",
	HealthListening:    "gRPC health listening on %s",
	ShuttingDown:       "Shutting down gracefully...",
	DryRunMode:         "Running in DRY-RUN mode (orders will NOT hit exchange)",
	ConfigLoadFailed:   "Failed to load config: %v",
	DBInitFailed:       "Failed to init database: %v",
	DBMigrationsFailed: "Failed to apply migrations: %v",
	KeyringFailed:      "Failed to load encryption keys: %v",
	APIServerError:     "API server error: %v",

	BotsSynced:     "Synced %d bots from %s",
	BotsSyncFailed: "Failed to sync bots from %s: %v",

	SchedulerStarted: "Scheduler started (reconcile=%s risk=%s signal=%s)",
	JobSkipped:       "Job %s still running, tick skipped",

	OrderPlaced:   "Order placed: %s %s %s @ %s (%s)",
	OrderFailed:   "Order failed: %s %s: %v",
	ForcedExit:    "Forced exit [%s]: %s sell %s (return %.2f%%)",
	TradeResolved: "Trade %s on %s -> %s",
	ReconSummary:  "Reconciliation: checked=%d done=%d cancelled=%d failed=%d skipped=%d",

	StrategyExtremeFlip:  "Extreme flip",
	StrategyDropNFlip:    "Drop and flip",
	StrategyBBRSI:        "Bollinger + RSI",
	StrategyRSIMACD:      "RSI + MACD",
	StrategyBBMACD:       "Bollinger + MACD",
	StrategyConservative: "Triple indicator (conservative)",
	StrategyModerate:     "Triple indicator (moderate)",
	StrategyAggressive:   "Triple indicator (aggressive)",
	ReasonLossManagement: "Loss management",
	ReasonProfitTaking:   "Profit taking",
	ReasonTimeoutSell:    "Timeout sell",
}

// Korean messages
var messagesKO = Messages{
	Starting:           "시그널 엔진 시작 중...",
	ConfigLoaded:       "설정 로드 완료 (포트: %s)",
	UsingDBPath:        "DB 경로: %s",
	ServerListening:    "상태 서버 수신 대기 :%s",
	HealthListening:    "gRPC 헬스 체크 수신 대기 %s",
	ShuttingDown:       "정상 종료 중...",
	DryRunMode:         "DRY-RUN 모드 (실제 주문을 전송하지 않음)",
	ConfigLoadFailed:   "설정 로드 실패: %v",
	DBInitFailed:       "데이터베이스 초기화 실패: %v",
	DBMigrationsFailed: "마이그레이션 적용 실패: %v",
	KeyringFailed:      "암호화 키 로드 실패: %v",
	APIServerError:     "API 서버 오류: %v",

	BotsSynced:     "%d개 봇 동기화 완료 (%s)",
	BotsSyncFailed: "봇 동기화 실패 (%s): %v",

	SchedulerStarted: "스케줄러 시작 (정산=%s 리스크=%s 시그널=%s)",
	JobSkipped:       "작업 %s 실행 중, 이번 주기 건너뜀",

	OrderPlaced:   "주문 접수: %s %s %s @ %s (%s)",
	OrderFailed:   "주문 실패: %s %s: %v",
	ForcedExit:    "강제 매도 [%s]: %s 수량 %s (수익률 %.2f%%)",
	TradeResolved: "거래 %s (%s) -> %s",
	ReconSummary:  "주문 정산: 확인=%d 체결=%d 취소=%d 실패=%d 건너뜀=%d",

	StrategyExtremeFlip:  "극단 반전",
	StrategyDropNFlip:    "하락 후 반전",
	StrategyBBRSI:        "볼린저밴드 + RSI",
	StrategyRSIMACD:      "RSI + MACD",
	StrategyBBMACD:       "볼린저밴드 + MACD",
	StrategyConservative: "트리플 지표 (보수적)",
	StrategyModerate:     "트리플 지표 (중립)",
	StrategyAggressive:   "트리플 지표 (공격적)",
	ReasonLossManagement: "손실 관리",
	ReasonProfitTaking:   "수익 실현",
	ReasonTimeoutSell:    "시간 초과 매도",
}

func init() {
	messages = &messagesEN
}

// SetLanguage sets the current language
func SetLanguage(lang Language) {
	mu.Lock()
	defer mu.Unlock()

	currentLang = lang
	switch lang {
	case LangKO:
		messages = &messagesKO
	default:
		currentLang = LangEN
		messages = &messagesEN
	}
}

// GetLanguage returns the current language
func GetLanguage() Language {
	mu.RLock()
	defer mu.RUnlock()
	return currentLang
}

// M returns the current messages
func M() *Messages {
	mu.RLock()
	defer mu.RUnlock()
	return messages
}

// Get returns specific message by key dynamically using reflection
func Get(key string) string {
	msg := M()
	v := reflect.ValueOf(msg).Elem()
	f := v.FieldByName(key)
	if f.IsValid() && f.Kind() == reflect.String {
		return f.String()
	}
	return key
}

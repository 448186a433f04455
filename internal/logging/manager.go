package logging

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
)

// Компоненты с отдельными файлами логов
const (
	ComponentServer = "server"
	ComponentAPI    = "api"
)

// LoggerManager раздаёт логгеры компонентов. Уровни из SetLevels действуют
// и на уже созданные логгеры, и на те, что появятся позже.
type LoggerManager struct {
	mu      sync.Mutex
	loggers map[string]*Logger
	console LogLevel
	file    LogLevel
	open    func(component string) (*Logger, error)
}

var (
	manager     *LoggerManager
	managerOnce sync.Once
)

// NewLoggerManager создаёт менеджер; open == nil - файловые логгеры NewLogger
func NewLoggerManager(open func(component string) (*Logger, error)) *LoggerManager {
	if open == nil {
		open = NewLogger
	}
	return &LoggerManager{
		loggers: make(map[string]*Logger),
		console: INFO,
		file:    TRACE,
		open:    open,
	}
}

// GetLoggerManager возвращает общий менеджер процесса
func GetLoggerManager() *LoggerManager {
	managerOnce.Do(func() {
		manager = NewLoggerManager(nil)
	})
	return manager
}

// Component возвращает логгер компонента, создавая его при первом обращении.
// Если файл не открылся, логгер пишет только в stdout.
func (lm *LoggerManager) Component(name string) *Logger {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if l, ok := lm.loggers[name]; ok {
		return l
	}
	l, err := lm.open(name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠️ Логгер %s работает без файла: %v\n", name, err)
		l = NewWriterLogger(name, os.Stdout, lm.console)
	}
	l.SetLevels(lm.console, lm.file)
	lm.loggers[name] = l
	return l
}

// SetLevels меняет уровни всех логгеров менеджера
func (lm *LoggerManager) SetLevels(console, file LogLevel) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lm.console, lm.file = console, file
	for _, l := range lm.loggers {
		l.SetLevels(console, file)
	}
}

// Components возвращает имена созданных логгеров по алфавиту
func (lm *LoggerManager) Components() []string {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	names := make([]string, 0, len(lm.loggers))
	for name := range lm.loggers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CloseAll закрывает файлы логгеров и забывает их
func (lm *LoggerManager) CloseAll() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	var errs []error
	for name, l := range lm.loggers {
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("логгер %s: %w", name, err))
		}
	}
	lm.loggers = make(map[string]*Logger)
	return errors.Join(errs...)
}

func GetComponentLogger(component string) *Logger {
	return GetLoggerManager().Component(component)
}

// GetAPILogger - логгер HTTP запросов
func GetAPILogger() *Logger {
	return GetComponentLogger(ComponentAPI)
}

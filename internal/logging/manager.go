package logging

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
)

// Имена компонентов, которые пишут в лог
const (
	ComponentRegion  = "region"
	ComponentSave    = "save"
	ComponentStorage = "storage"
	ComponentAPI     = "api"
)

type levels struct {
	console, file LogLevel
}

// LoggerManager хранит по одному логгеру на компонент. Уровни можно задать
// заранее: компоненты region и save создаются лениво, при первом открытии мира.
type LoggerManager struct {
	mu      sync.Mutex
	loggers map[string]*Logger
	presets map[string]levels
}

var (
	globalManager *LoggerManager
	managerOnce   sync.Once
)

// GetLoggerManager общий менеджер процесса
func GetLoggerManager() *LoggerManager {
	managerOnce.Do(func() {
		globalManager = &LoggerManager{
			loggers: make(map[string]*Logger),
			presets: make(map[string]levels),
		}
	})
	return globalManager
}

// GetLogger возвращает логгер компонента, при первом обращении создаёт его
// с заранее заданными уровнями.
func (lm *LoggerManager) GetLogger(component string) (*Logger, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if l, ok := lm.loggers[component]; ok {
		return l, nil
	}
	l, err := NewLogger(component)
	if err != nil {
		return nil, fmt.Errorf("логгер %s: %w", component, err)
	}
	if p, ok := lm.presets[component]; ok {
		l.SetLevel(p.console, p.file)
	}
	lm.loggers[component] = l
	return l, nil
}

// MustGetLogger как GetLogger, но при ошибке файла пишет только в stdout
func (lm *LoggerManager) MustGetLogger(component string) *Logger {
	l, err := lm.GetLogger(component)
	if err == nil {
		return l
	}
	fallback := NewConsoleLogger(component, os.Stdout, INFO)
	fallback.Warn("файл логов недоступен: %v", err)
	return fallback
}

// SetLogLevel меняет уровни существующего логгера или запоминает их для
// компонента, который ещё не создан.
func (lm *LoggerManager) SetLogLevel(component string, console, file LogLevel) error {
	if component == "" {
		return errors.New("пустое имя компонента")
	}
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lm.presets[component] = levels{console: console, file: file}
	if l, ok := lm.loggers[component]; ok {
		l.SetLevel(console, file)
	}
	return nil
}

// ListComponents созданные компоненты по алфавиту
func (lm *LoggerManager) ListComponents() []string {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	names := make([]string, 0, len(lm.loggers))
	for name := range lm.loggers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CloseAll закрывает файлы всех логгеров и забывает их. Заданные уровни остаются.
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
	return GetLoggerManager().MustGetLogger(component)
}

func GetRegionLogger() *Logger  { return GetComponentLogger(ComponentRegion) }
func GetSaveLogger() *Logger    { return GetComponentLogger(ComponentSave) }
func GetStorageLogger() *Logger { return GetComponentLogger(ComponentStorage) }
func GetAPILogger() *Logger     { return GetComponentLogger(ComponentAPI) }

// Package config загружает конфигурацию приложения из YAML-файла.
//
// Отсутствующий файл не является ошибкой: в этом случае применяются
// значения по умолчанию. Секции повторяют структуру компонентов:
// датасет, внешние инструменты, шаблоны, исполнение, БД и метрики.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"canalis/internal/pipeline"
	"canalis/internal/tools"
)

// DatasetConfig — расположение данных BIDS-датасета.
type DatasetConfig struct {
	// DataDir — корень датасета (каталоги sub-*).
	DataDir string `yaml:"dataDir"`

	// WorkDir — каталог промежуточных файлов по субъектам.
	WorkDir string `yaml:"workDir"`

	// ResultsDir — каталог опубликованных результатов.
	ResultsDir string `yaml:"resultsDir"`

	// Contrast — контраст изображения. По умолчанию "T2w".
	Contrast string `yaml:"contrast"`

	// Patterns — глобы поиска изображения в порядке предпочтения.
	// Пустой список означает стандартные шаблоны для контраста.
	Patterns []string `yaml:"patterns"`
}

// ToolsConfig — команды внешних инструментов и ограничения потоков.
type ToolsConfig struct {
	TotalSpineSeg string `yaml:"totalSpineSeg"`
	SPINEPS       string `yaml:"spineps"`
	Register      string `yaml:"register"`
	Warp          string `yaml:"warp"`
	Measure       string `yaml:"measure"`
	QC            string `yaml:"qc"`

	// Threads — внутренние потоки инструментов. Нули означают
	// значения по умолчанию (по одному потоку).
	Threads struct {
		ITK     int `yaml:"itk"`
		OpenMP  int `yaml:"openmp"`
		Workers int `yaml:"workers"`
	} `yaml:"threads"`
}

// TemplatesConfig — пути к файлам шаблона PAM50.
type TemplatesConfig struct {
	Cord   string `yaml:"cord"`
	CSF    string `yaml:"csf"`
	Atlas  string `yaml:"atlas"`
	Levels string `yaml:"levels"`
}

// RunConfig — параллелизм исполнения.
type RunConfig struct {
	// Subjects — сколько субъектов обрабатывается одновременно.
	Subjects int `yaml:"subjects"`

	// Tasks — параллелизм задач внутри одного субъекта.
	Tasks int `yaml:"tasks"`
}

// Config — полная конфигурация приложения.
type Config struct {
	Dataset   DatasetConfig   `yaml:"dataset"`
	Tools     ToolsConfig     `yaml:"tools"`
	Templates TemplatesConfig `yaml:"templates"`
	Run       RunConfig       `yaml:"run"`

	// Database.DSN — строка подключения PostgreSQL. Пустая строка
	// отключает публикацию в БД; переменная окружения DB_URL имеет
	// приоритет над файлом.
	Database struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`

	// Metrics.Addr — адрес HTTP-эндпоинта /metrics. Пустая строка
	// отключает эндпоинт.
	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
}

// Default возвращает конфигурацию со значениями по умолчанию.
func Default() *Config {
	cfg := &Config{}
	cfg.Dataset.DataDir = "data"
	cfg.Dataset.WorkDir = "work"
	cfg.Dataset.ResultsDir = "results"
	cfg.Dataset.Contrast = "T2w"
	cfg.Run.Subjects = 2
	cfg.Run.Tasks = 4
	return cfg
}

// Load читает конфигурацию из YAML-файла. Отсутствующий файл даёт
// конфигурацию по умолчанию.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if v := os.Getenv("DB_URL"); v != "" {
		cfg.Database.DSN = v
	}
	return cfg, nil
}

// Save записывает конфигурацию в YAML-файл, создавая каталог при
// необходимости. Используется командой генерации примера конфигурации.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// Validate проверяет поля, без которых конвейер не может работать.
func (c *Config) Validate() error {
	if c.Dataset.DataDir == "" {
		return fmt.Errorf("dataset.dataDir is required")
	}
	if c.Dataset.Contrast == "" {
		return fmt.Errorf("dataset.contrast is required")
	}
	if c.Templates.Cord == "" || c.Templates.CSF == "" ||
		c.Templates.Atlas == "" || c.Templates.Levels == "" {
		return fmt.Errorf("all template paths are required (cord, csf, atlas, levels)")
	}
	if c.Run.Subjects < 1 {
		return fmt.Errorf("run.subjects must be positive")
	}
	if c.Run.Tasks < 1 {
		return fmt.Errorf("run.tasks must be positive")
	}
	return nil
}

// ThreadCaps переводит секцию потоков в ограничения инструментов.
func (c *Config) ThreadCaps() tools.ThreadCaps {
	caps := tools.DefaultThreadCaps()
	if c.Tools.Threads.ITK > 0 {
		caps.ITK = c.Tools.Threads.ITK
	}
	if c.Tools.Threads.OpenMP > 0 {
		caps.OpenMP = c.Tools.Threads.OpenMP
	}
	if c.Tools.Threads.Workers > 0 {
		caps.Workers = c.Tools.Threads.Workers
	}
	return caps
}

// ExecConfig собирает конфигурацию адаптера внешних инструментов.
func (c *Config) ExecConfig() tools.ExecConfig {
	return tools.ExecConfig{
		TotalSpineSegBin: c.Tools.TotalSpineSeg,
		SPINEPSBin:       c.Tools.SPINEPS,
		RegisterBin:      c.Tools.Register,
		WarpBin:          c.Tools.Warp,
		MeasureBin:       c.Tools.Measure,
		QCBin:            c.Tools.QC,
		Threads:          c.ThreadCaps(),
	}
}

// TemplateSet переводит секцию шаблонов в параметры графа.
func (c *Config) TemplateSet() pipeline.TemplateSet {
	return pipeline.TemplateSet{
		Cord:   c.Templates.Cord,
		CSF:    c.Templates.CSF,
		Atlas:  c.Templates.Atlas,
		Levels: c.Templates.Levels,
	}
}

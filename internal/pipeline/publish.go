package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"canalis/internal/domain"
	"canalis/internal/methods"
	"canalis/internal/tools"
)

// ResultPublisher — приёмник полных наборов результатов субъекта,
// например репозиторий измерений поверх БД.
type ResultPublisher interface {
	PublishResultSet(ctx context.Context, run *domain.SubjectRun, key domain.ResultKey, set *domain.ResultSet) error
}

// ExpectedResultKeys возвращает ключи наборов, которые обязан
// произвести успешный субъект: TotalSpineSeg, по три режима для
// Atlas41 и PAM50, плюс SPINEPS при доступном инструменте.
func ExpectedResultKeys(spineps bool) []domain.ResultKey {
	var keys []domain.ResultKey
	for _, def := range methods.All() {
		if def.Optional && !spineps {
			continue
		}
		keys = append(keys, def.ResultKeys()...)
	}
	return keys
}

// Publish выкладывает результаты субъекта в дерево результатов:
// results/method-<метод>[-<режим>]/<base>_{cord,canal,ratio}.csv.
//
// Публикация «всё или ничего»: сначала проверяется полнота каждого
// ожидаемого набора, и только потом пишутся файлы. Частично
// заполненные наборы не публикуются никогда.
func Publish(ws *Workspace, resultsDir, base string, keys []domain.ResultKey) error {
	for _, key := range keys {
		if !ws.Result(key).Complete() {
			return fmt.Errorf("result set %s is incomplete, refusing to publish", key.Dir())
		}
	}

	for _, key := range keys {
		dir := filepath.Join(resultsDir, key.Dir())
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create results dir: %w", err)
		}
		set := ws.Result(key)
		for _, measure := range domain.Measures {
			path := tools.Ref(filepath.Join(dir, ResultFileName(base, measure)))
			if err := tools.WriteLevelTable(set.Table(measure), path); err != nil {
				return fmt.Errorf("publish %s %s: %w", key.Dir(), measure, err)
			}
		}
	}
	return nil
}

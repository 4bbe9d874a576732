package pipeline

import (
	"fmt"
	"path/filepath"
	"sort"

	"canalis/internal/tools"
)

// DefaultPatterns возвращает упорядоченный список шаблонов имени
// входного изображения для контраста: сначала чистый контраст, затем
// вариант с контрастным веществом. Первый существующий файл выигрывает.
func DefaultPatterns(contrast string) []string {
	return []string{
		"*_" + contrast + ".nii.gz",
		"*_ce-*_" + contrast + ".nii.gz",
	}
}

// Discover ищет входное изображение субъекта в каталоге anat по
// упорядоченному списку шаблонов. Возвращает ErrInputMissing, когда
// ни один шаблон не находит файла: субъект пропускается, это не отказ.
func Discover(anatDir string, patterns []string) (tools.Ref, error) {
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(anatDir, pattern))
		if err != nil {
			return "", fmt.Errorf("discover input: bad pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			continue
		}
		// Детерминированный выбор при нескольких совпадениях: меньше
		// BIDS-сущностей в имени — выше приоритет, поэтому сначала
		// самое короткое имя.
		sort.Slice(matches, func(i, j int) bool {
			if len(matches[i]) != len(matches[j]) {
				return len(matches[i]) < len(matches[j])
			}
			return matches[i] < matches[j]
		})
		return tools.Ref(matches[0]), nil
	}
	return "", fmt.Errorf("%w: no image in %s", tools.ErrInputMissing, anatDir)
}

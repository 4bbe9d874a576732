package pipeline

import (
	"canalis/internal/domain"
)

// Имена промежуточных файлов — контракт происхождения: QC и агрегация
// опираются на эти строки, менять их нельзя.

// SubjectBase возвращает базовое имя файлов субъекта:
// "sub-amu01_ses-01_T2w" или "sub-amu01_T2w" без сессии.
func SubjectBase(subject, session, contrast string) string {
	base := subject
	if session != "" {
		base += "_" + session
	}
	return base + "_" + contrast
}

// SegMaskName возвращает имя маски, производной от сегментации:
// "<base>_seg-<method>-<structure>.nii.gz".
func SegMaskName(base string, method domain.Method, structure string) string {
	return base + "_seg-" + string(method) + "-" + structure + ".nii.gz"
}

// WarpedName возвращает имя варпированного шаблона:
// "<template>_warped_<mode>.nii.gz".
func WarpedName(template string, mode domain.InterpolationMode) string {
	return template + "_warped_" + string(mode) + ".nii.gz"
}

// WarpedBinName возвращает имя бинаризованного варпированного шаблона:
// "<template>_warped_<mode>_bin.nii.gz".
func WarpedBinName(template string, mode domain.InterpolationMode) string {
	return template + "_warped_" + string(mode) + "_bin.nii.gz"
}

// ResultFileName возвращает имя per-subject CSV результата:
// "<base>_cord.csv", "<base>_canal.csv", "<base>_ratio.csv".
func ResultFileName(base, measure string) string {
	return base + "_" + measure + ".csv"
}

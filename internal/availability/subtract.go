package availability

// MinuteRange は0時からの経過分で表した半開区間 [Start, End)。
// Start < End かつ両端が 0-1440 の範囲にあることを前提とする。
type MinuteRange struct {
	Start int `json:"start_min"`
	End   int `json:"end_min"`
}

// Len は区間の長さ（分）を返す。
func (r MinuteRange) Len() int {
	return r.End - r.Start
}

// Overlaps は2つの区間が1分以上重なるかを返す。端点が接するだけの場合は重ならない。
func (r MinuteRange) Overlaps(o MinuteRange) bool {
	return r.Start < o.End && o.Start < r.End
}

// Subtract はbaseの各区間からcutsの区間を順に取り除いた残りを返す。
//
// cutsは入力順に1つずつ適用し、そのたびに作業中の区間を分割する。
// 分割後の断片の相対順序は保たれる。入力の検証は行わない（呼び出し側の責務）。
// baseのスライスは変更しない。
func Subtract(base, cuts []MinuteRange) []MinuteRange {
	result := make([]MinuteRange, len(base))
	copy(result, base)

	for _, cut := range cuts {
		next := make([]MinuteRange, 0, len(result)+1)
		for _, w := range result {
			if !cut.Overlaps(w) {
				next = append(next, w)
				continue
			}
			if cut.Start > w.Start {
				next = append(next, MinuteRange{Start: w.Start, End: cut.Start})
			}
			if cut.End < w.End {
				next = append(next, MinuteRange{Start: cut.End, End: w.End})
			}
		}
		result = next
	}

	return result
}

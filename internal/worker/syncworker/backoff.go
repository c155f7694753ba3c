package syncworker

import "time"

// 同期失敗時の待機は1分から倍々に伸ばし、1時間で頭打ちにする。
const (
	initialBackoff = time.Minute
	maxBackoff     = time.Hour
)

// CalculateBackoff は連続失敗回数 failures に対する次回同期までの待機時間を返す。
func CalculateBackoff(failures int) time.Duration {
	if failures <= 0 {
		return initialBackoff
	}
	// 64分を超えるシフトは常に上限を超える
	if failures >= 6 {
		return maxBackoff
	}
	return min(initialBackoff<<failures, maxBackoff)
}

package services

import "strings"

// moodCategory ムード分類の1カテゴリ
type moodCategory struct {
	name     string
	keywords []string
}

// moodCategories 8つの固定カテゴリ。先頭から評価し、最初に一致した
// カテゴリを採用します。
var moodCategories = []moodCategory{
	{"tired", []string{"tired", "exhausted", "sleepy", "worn out", "fatigued"}},
	{"happy", []string{"happy", "excited", "great mood", "wonderful", "cheerful"}},
	{"sad", []string{"sad", "down", "unhappy", "depressed", "blue"}},
	{"stressed", []string{"stressed", "anxious", "overwhelmed", "under pressure"}},
	{"bored", []string{"bored", "boring", "nothing to do"}},
	{"energetic", []string{"energetic", "energized", "pumped", "active"}},
	{"hungry", []string{"hungry", "starving", "craving", "snacky"}},
	{"relaxed", []string{"relaxed", "chill", "calm", "cozy"}},
}

// DetectMood はメッセージからムード修飾子を検出します。一致がなければ
// 空文字を返します。週替わりセールとレコメンドのプロンプトを調整する
// だけで、ルーティングの分岐には使われません。
func DetectMood(message string) string {
	lowered := strings.ToLower(message)
	for _, category := range moodCategories {
		for _, keyword := range category.keywords {
			if strings.Contains(lowered, keyword) {
				return category.name
			}
		}
	}
	return ""
}

// Package model はドメインモデルを定義する。
package model

import "time"

// Session は認証済みユーザーの識別情報とベアラートークンを表す。
// トークンを書き換えることはなく、ログインのたびに新しいSessionで丸ごと置き換える。
type Session struct {
	Username  string
	Name      string
	CreatedAt time.Time
	Token     string
}

// Valid はユーザー名とトークンが揃っているかを返す。
// どちらかが欠けたSessionは匿名と同じとして扱う。
func (s Session) Valid() bool {
	return s.Username != "" && s.Token != ""
}

// Account はsignup/login/再ログインで取得したユーザー情報を表す。
// お気に入りと自分の投稿はAPIのユーザーペイロードから変換される。
type Account struct {
	Session    Session
	Favorites  []Story
	OwnStories []Story
}

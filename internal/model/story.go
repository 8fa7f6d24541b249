// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"net/url"
	"time"
)

// Story は共有された1件のストーリーを表す。
// 値型として扱い、生成後にフィールドを書き換えない。更新はインスタンスの置き換えで表現する。
type Story struct {
	StoryID   string
	Title     string
	Author    string
	URL       string
	Username  string // 投稿者
	CreatedAt time.Time
}

// HostName はURLからホスト名を取り出して返す。
// スキームまたはホストを持たないURLはエラーとし、空文字列を返して黙って成功することはない。
func (s Story) HostName() (string, error) {
	u, err := url.Parse(s.URL)
	if err != nil {
		return "", fmt.Errorf("URLのパースに失敗しました: %w", err)
	}
	if u.Scheme == "" || u.Hostname() == "" {
		return "", fmt.Errorf("URLにスキームまたはホストがありません: %q", s.URL)
	}
	return u.Hostname(), nil
}

// StoryInput はストーリー投稿時の入力を表す。
type StoryInput struct {
	Title  string
	Author string
	URL    string
}

// IndexOf はstoriesの中でstoryIDを持つ要素の位置を返す。見つからない場合は-1を返す。
func IndexOf(stories []Story, storyID string) int {
	for i, s := range stories {
		if s.StoryID == storyID {
			return i
		}
	}
	return -1
}

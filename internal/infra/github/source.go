package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"

	"github.com/jinford/persona-rag/internal/core/ingestion"
)

const (
	// DefaultTimeout はGitHub APIのHTTPタイムアウト
	DefaultTimeout = 30 * time.Second

	// readmeExcerptWords はサマリに含めるREADME冒頭の単語数
	readmeExcerptWords = 200

	// reposPerPage はリポジトリ一覧のページサイズ
	reposPerPage = 100
)

// Source は公開リポジトリのメタデータをインジェスト用ドキュメントに変換する
type Source struct {
	client *gh.Client
	user   string
	logger *slog.Logger
}

type sourceOptions struct {
	token  string
	logger *slog.Logger
}

// SourceOption は Source のオプション設定
type SourceOption func(*sourceOptions)

// WithToken は認証トークンを設定する。未設定の場合は匿名アクセスになる
func WithToken(token string) SourceOption {
	return func(o *sourceOptions) {
		o.token = token
	}
}

// WithSourceLogger はロガーを上書きする
func WithSourceLogger(logger *slog.Logger) SourceOption {
	return func(o *sourceOptions) {
		o.logger = logger
	}
}

// NewSource は指定ユーザーのリポジトリを読む Source を作成する
func NewSource(user string, opts ...SourceOption) (*Source, error) {
	if user == "" {
		return nil, fmt.Errorf("github user is required")
	}

	options := sourceOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	var httpClient *http.Client
	if options.token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: options.token})
		httpClient = oauth2.NewClient(context.Background(), ts)
	} else {
		httpClient = &http.Client{}
	}
	httpClient.Timeout = DefaultTimeout

	return &Source{
		client: gh.NewClient(httpClient),
		user:   user,
		logger: options.logger,
	}, nil
}

// FetchDocuments はユーザーの公開リポジトリごとにサマリドキュメントを生成する。
// ForkとアーカイブされたリポジトリはCV的な情報価値が低いので除外する
func (s *Source) FetchDocuments(ctx context.Context) ([]*ingestion.Document, error) {
	repos, err := s.listRepos(ctx)
	if err != nil {
		return nil, err
	}

	documents := make([]*ingestion.Document, 0, len(repos))
	for _, repo := range repos {
		if repo.GetFork() || repo.GetArchived() || repo.GetDisabled() {
			continue
		}

		summary := s.buildSummary(ctx, repo)

		documents = append(documents, &ingestion.Document{
			SourceLabel: "github",
			Format:      ingestion.FormatMarkdown,
			Raw:         []byte(summary),
			Title:       repo.GetFullName(),
			URL:         repo.GetHTMLURL(),
			Category:    ingestion.ChunkTypeRepoMeta,
		})
	}

	s.logger.InfoContext(ctx, "fetched github repositories",
		slog.String("user", s.user),
		slog.Int("repos", len(repos)),
		slog.Int("documents", len(documents)),
	)

	return documents, nil
}

func (s *Source) listRepos(ctx context.Context) ([]*gh.Repository, error) {
	var all []*gh.Repository

	opts := &gh.RepositoryListByUserOptions{
		Type:        "owner",
		Sort:        "updated",
		ListOptions: gh.ListOptions{PerPage: reposPerPage},
	}

	for {
		repos, resp, err := s.client.Repositories.ListByUser(ctx, s.user, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list repositories for %s: %w", s.user, err)
		}
		all = append(all, repos...)

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return all, nil
}

// buildSummary はリポジトリのメタデータを1つのMarkdownテキストにまとめる。
// 言語やREADMEの取得失敗はサマリから省くだけでエラーにはしない
func (s *Source) buildSummary(ctx context.Context, repo *gh.Repository) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", repo.GetFullName())

	if desc := repo.GetDescription(); desc != "" {
		fmt.Fprintf(&b, "%s\n\n", desc)
	}

	if langs := s.languages(ctx, repo); langs != "" {
		fmt.Fprintf(&b, "Languages: %s.\n", langs)
	}

	if topics := repo.Topics; len(topics) > 0 {
		fmt.Fprintf(&b, "Topics: %s.\n", strings.Join(topics, ", "))
	}

	fmt.Fprintf(&b, "Stars: %d. Forks: %d.\n", repo.GetStargazersCount(), repo.GetForksCount())

	if excerpt := s.readmeExcerpt(ctx, repo); excerpt != "" {
		fmt.Fprintf(&b, "\n%s\n", excerpt)
	}

	return b.String()
}

func (s *Source) languages(ctx context.Context, repo *gh.Repository) string {
	langs, _, err := s.client.Repositories.ListLanguages(ctx, repo.GetOwner().GetLogin(), repo.GetName())
	if err != nil || len(langs) == 0 {
		if err != nil {
			s.logger.WarnContext(ctx, "failed to list languages",
				slog.String("repo", repo.GetFullName()),
				slog.String("error", err.Error()),
			)
		}
		return ""
	}

	names := make([]string, 0, len(langs))
	for name := range langs {
		names = append(names, name)
	}
	// バイト数の多い言語から並べる
	sort.Slice(names, func(i, j int) bool {
		return langs[names[i]] > langs[names[j]]
	})

	return strings.Join(names, ", ")
}

func (s *Source) readmeExcerpt(ctx context.Context, repo *gh.Repository) string {
	readme, _, err := s.client.Repositories.GetReadme(ctx, repo.GetOwner().GetLogin(), repo.GetName(), nil)
	if err != nil {
		return ""
	}

	content, err := readme.GetContent()
	if err != nil {
		return ""
	}

	words := strings.Fields(content)
	if len(words) > readmeExcerptWords {
		words = words[:readmeExcerptWords]
	}
	return strings.Join(words, " ")
}

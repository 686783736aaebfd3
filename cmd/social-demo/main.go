// Command social-demo runs a small social-feed backend with gin and
// drives a livenav client against it: soft navigations, pagination,
// a deep link that pages forward to its target, and the live-update
// pollers. It prints what the client does at each step.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"

	"github.com/livefir/livenav"
)

const totalPosts = 47

func main() {
	viper.SetEnvPrefix("SOCIAL")
	viper.AutomaticEnv()
	viper.SetDefault("addr", "127.0.0.1:8787")
	viper.SetDefault("page_size", 10)

	addr := viper.GetString("addr")
	pageSize := viper.GetInt("page_size")

	srv := &http.Server{Addr: addr, Handler: newBackend(addr, pageSize)}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()
	defer func() { _ = srv.Shutdown(context.Background()) }()

	// Give the listener a moment to come up.
	time.Sleep(200 * time.Millisecond)

	if err := runClient("http://"+addr, pageSize); err != nil {
		log.Fatalf("demo failed: %v", err)
	}
}

// newBackend builds the demo's server side: a boot page, partial
// fragments, the pagination endpoint and the two check endpoints.
func newBackend(addr string, pageSize int) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	base := "http://" + addr

	r.GET("/", func(c *gin.Context) {
		c.Header("Content-Type", "text/html")
		c.String(http.StatusOK, bootPage())
	})
	r.GET("/partial/feed", func(c *gin.Context) {
		c.Header("Content-Type", "text/html")
		c.String(http.StatusOK, feedFragment(base, pageSize))
	})
	r.GET("/partial/profile", func(c *gin.Context) {
		c.Header("Content-Type", "text/html")
		c.String(http.StatusOK, `<section id="profile-view"><h2>Your profile</h2></section>`)
	})
	r.GET("/api/posts", func(c *gin.Context) {
		page := c.DefaultQuery("page", "1")
		c.JSON(http.StatusOK, gin.H{"posts": postsPage(page, pageSize)})
	})
	r.GET("/check/feed", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"has_new_posts": true})
	})
	r.GET("/check/notifications", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"unread_count": 1,
			"new_notifications": []gin.H{
				{"text": "Maya commented on your post", "url": "/profile"},
			},
		})
	})
	return r
}

func runClient(base string, pageSize int) error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg := livenav.Config{
		Routes: []livenav.RouteConfig{
			{Path: "/", ContentEndpoint: base + "/partial/feed", Title: "Feed"},
			{Path: "/profile", ContentEndpoint: base + "/partial/profile", Title: "Profile"},
		},
		DefaultPath:          "/",
		FeedCheckURL:         base + "/check/feed",
		NotificationCheckURL: base + "/check/notifications",
		FeedInterval:         livenav.Duration(5 * time.Second),
		NotificationInterval: livenav.Duration(5 * time.Second),
		SettleDelay:          -1,
	}

	client, err := livenav.NewClient(bootPage(), cfg,
		livenav.WithLogger(logger),
		livenav.WithNotify(func(msg string) { fmt.Println("notice:", msg) }),
		livenav.WithAnnouncer(func(n livenav.Notification) {
			fmt.Printf("notification: %s -> %s\n", n.Text, n.URL)
		}),
	)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	ctx := context.Background()

	// Deep link into a post beyond the first page; the client pages
	// forward until it finds it.
	target := fmt.Sprintf("post-%d", pageSize*2+3)
	if err := client.Start(ctx, "/#"+target, feedFragment(base, pageSize)); err != nil {
		return err
	}
	fmt.Printf("deep link: scrolled to %q, %d items loaded\n",
		client.Document().ScrolledTo(), client.Document().ChildCount("posts-feed"))

	if err := client.LoadMore(ctx, "posts-feed"); err != nil {
		return err
	}
	fmt.Printf("load more: %d items\n", client.Document().ChildCount("posts-feed"))

	if err := client.Navigate(ctx, "/profile"); err != nil {
		return err
	}
	fmt.Printf("navigated: title=%q path=%q\n",
		client.Document().Title(), client.Router().CurrentPath())
	client.Back(ctx)
	fmt.Printf("back: path=%q\n", client.Router().CurrentPath())

	// Backgrounding stops the poll schedules; foregrounding restarts
	// them with an immediate check, which lights up the indicators.
	client.SetVisible(false)
	client.SetVisible(true)
	fmt.Printf("new-posts indicator visible: %v\n",
		client.Document().IsVisible(livenav.NewPostsIndicatorID))
	fmt.Printf("badge: %q\n", client.Document().Text(livenav.NotificationBadgeID))

	snap := client.Metrics()
	fmt.Printf("metrics: navigations=%d pops=%d swaps=%d pages=%d items=%d checks=%d\n",
		snap.Navigations, snap.HistoryPops, snap.ContentSwaps,
		snap.PagesFetched, snap.ItemsAppended, snap.ChecksPerformed)
	return nil
}

func bootPage() string {
	return `<html><head><title>Social</title></head><body>
<nav>
  <a id="nav-home" href="/" data-nav>Home</a>
  <a id="nav-profile" href="/profile" data-nav>Profile</a>
</nav>
<span id="new-posts-indicator" hidden>New posts available</span>
<span id="notification-badge" hidden></span>
<div id="toast-container"></div>
<main id="content"><p>loading</p></main>
</body></html>`
}

func feedFragment(base string, pageSize int) string {
	frag := fmt.Sprintf(`<div id="posts-feed" data-paginate data-key="posts" data-api="%s/api/posts" data-page-size="%d">`,
		base, pageSize)
	for i := 1; i <= pageSize; i++ {
		frag += fmt.Sprintf(`<article id="post-%d">Post %d</article>`, i, i)
	}
	return frag + `</div>`
}

// postsPage renders one page of demo posts as HTML snippets.
func postsPage(page string, pageSize int) []string {
	var n int
	_, _ = fmt.Sscanf(page, "%d", &n)
	if n < 1 {
		n = 1
	}
	var items []string
	start := (n-1)*pageSize + 1
	for i := start; i <= start+pageSize-1 && i <= totalPosts; i++ {
		items = append(items, fmt.Sprintf(`<article id="post-%d">Post %d</article>`, i, i))
	}
	return items
}

package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"github.com/d60-Lab/sendables/config"
	"github.com/d60-Lab/sendables/internal/entities"
	"github.com/d60-Lab/sendables/internal/model"
	"github.com/d60-Lab/sendables/internal/registry"
	"github.com/d60-Lab/sendables/internal/service"
	"github.com/d60-Lab/sendables/pkg/database"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	xs := append([]time.Duration(nil), vs...)
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
	k := int(math.Ceil(p*float64(len(xs)))) - 1
	if k < 0 {
		k = 0
	}
	if k >= len(xs) {
		k = len(xs) - 1
	}
	return xs[k]
}

func main() {
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))
	mustDo(database.Migrate(db,
		&model.User{},
		&model.ReceivedSendable{},
		&model.RecipientSendableAssociation{},
		&model.Message{},
	))

	// params
	N := 5000     // recipients in the system
	SENDS := 200  // deliveries to measure
	FANOUT := 50  // recipients per delivery
	PAGE := 50    // inbox page size
	if s := os.Getenv("N"); s != "" {
		if v, e := strconv.Atoi(s); e == nil && v > 0 {
			N = v
		}
	}
	if s := os.Getenv("SENDS"); s != "" {
		if v, e := strconv.Atoi(s); e == nil && v > 0 {
			SENDS = v
		}
	}
	if s := os.Getenv("FANOUT"); s != "" {
		if v, e := strconv.Atoi(s); e == nil && v > 0 {
			FANOUT = v
		}
	}
	if s := os.Getenv("PAGE"); s != "" {
		if v, e := strconv.Atoi(s); e == nil && v > 0 {
			PAGE = v
		}
	}
	if FANOUT > N {
		FANOUT = N
	}

	reg := registry.New(viper.New())
	mustDo(entities.RegisterMessage(reg))
	msgCfg, _ := reg.Lookup("message")

	// seed sender and N recipients
	sender := model.User{Username: "sender0", Email: "sender0@example.com", Password: "p"}
	_ = db.Where("username = ?", sender.Username).FirstOrCreate(&sender).Error
	users := make([]model.User, N)
	for i := 0; i < N; i++ {
		name := fmt.Sprintf("u%06d", i)
		users[i] = model.User{Username: name, Email: name + "@example.com", Password: "p"}
	}
	_ = db.CreateInBatches(&users, 1000).Error

	ctx := context.Background()
	unread := service.NewUnreadCache(nil, 0)
	send := service.NewSendService(db, unread)
	list := service.NewListService(db, unread)

	// measure delivery latency (tx: content + FANOUT inbox copies + assocs)
	sendDurations := make([]time.Duration, 0, SENDS)
	recipientIDs := make([]uint, FANOUT)
	for i := 0; i < SENDS; i++ {
		for j := 0; j < FANOUT; j++ {
			recipientIDs[j] = users[(i*FANOUT+j)%N].ID
		}
		st := time.Now()
		_, err := send.Send(ctx, msgCfg, sender.ID,
			map[string]any{"content": fmt.Sprintf("hello %d", i)}, recipientIDs)
		if err != nil {
			panic(err)
		}
		sendDurations = append(sendDurations, time.Since(st))
	}

	// measure one recipient's inbox read (first page)
	st := time.Now()
	items, err := list.ListReceived(ctx, msgCfg, users[0].ID, nil, nil, service.Page{Number: 1, Size: PAGE})
	if err != nil {
		panic(err)
	}
	readDur := time.Since(st)

	// and the sender's outbox grouping
	st = time.Now()
	sent, err := list.ListSent(ctx, msgCfg, sender.ID, nil, service.Page{Number: 1, Size: PAGE})
	if err != nil {
		panic(err)
	}
	sentDur := time.Since(st)

	var sum time.Duration
	for _, d := range sendDurations {
		sum += d
	}
	fmt.Printf("N=%d SENDS=%d FANOUT=%d PAGE=%d\n", N, SENDS, FANOUT, PAGE)
	fmt.Printf("Delivery tx latency: avg=%v p95=%v p99=%v\n",
		sum/time.Duration(len(sendDurations)), pct(sendDurations, 0.95), pct(sendDurations, 0.99))
	fmt.Printf("Inbox read (user0, limit=%d): %v, rows=%d\n", PAGE, readDur, len(items))
	fmt.Printf("Outbox read (sender0, limit=%d): %v, rows=%d\n", PAGE, sentDur, len(sent))
}

func mustDo(err error) {
	if err != nil {
		panic(err)
	}
}

package spineweb_test

import (
	"context"
	"fmt"

	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/spineio/spineweb.go"
	"github.com/spineio/spineweb.go/pkg/filters"
	"github.com/spineio/spineweb.go/pkg/models"
	"github.com/spineio/spineweb.go/pkg/pushstore/memstore"
)

func newExampleClient(backend *fakeBackend) *spineweb.Client {
	cfg := spineweb.DefaultConfig()
	cfg.Actor = "example"

	client, err := spineweb.NewClient(context.Background(), cfg,
		spineweb.WithEndpoint(backend),
		spineweb.WithPushStore(backend.store),
	)
	if err != nil {
		panic(err)
	}
	return client
}

func ExampleClient_FetchAll() {
	backend := &fakeBackend{store: memstore.New(), items: []string{"first", "second"}}
	client := newExampleClient(backend)
	defer client.Close()

	msgs, err := client.FetchAll(context.Background(), models.StringType)
	if err != nil {
		panic(err)
	}
	for _, m := range msgs {
		fmt.Println(m.(*wrapperspb.StringValue).GetValue())
	}

	// Output:
	// first
	// second
}

func ExampleClient_FetchOneByOne() {
	backend := &fakeBackend{store: memstore.New(), items: []string{"a", "b", "c"}}
	client := newExampleClient(backend)
	defer client.Close()

	q, err := client.Query(models.StringType).
		Where(filters.Eq("status", models.String("open")), filters.Gt("priority", models.Int32(2))).
		WithMask("value").
		Build()
	if err != nil {
		panic(err)
	}

	stream := client.FetchOneByOne(context.Background(), q)
	defer stream.Close()
	for m := range stream.Items() {
		fmt.Println(m.(*wrapperspb.StringValue).GetValue())
	}
	<-stream.Done()
	fmt.Println("err:", stream.Err())

	// Output:
	// a
	// b
	// c
	// err: <nil>
}

func ExampleClient_Query_duplicateSetter() {
	backend := &fakeBackend{store: memstore.New()}
	client := newExampleClient(backend)
	defer client.Close()

	_, err := client.Query(models.StringType).ByIDs("a").ByIDs("b").Build()
	fmt.Println(err != nil)

	// Output:
	// true
}

func ExampleClient_SendCommand() {
	backend := &fakeBackend{
		store: memstore.New(),
		ack:   &models.Ack{Rejection: &models.CommandRejection{ID: "r-1"}},
	}
	client := newExampleClient(backend)
	defer client.Close()

	client.SendCommand(context.Background(), models.String("archive"), spineweb.CommandHandlers{
		OnOK:    func() { fmt.Println("done") },
		OnError: func(err error) { fmt.Println("failed:", err) },
		OnRejection: func(r *models.CommandRejection) {
			fmt.Println("rejected:", r.ID)
		},
	})

	// Output:
	// rejected: r-1
}

package test

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/MrEthical07/otpgate"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var codePattern = regexp.MustCompile(`\d{6}`)

// ExampleEngine_Verify walks a registration from signup to login.
func ExampleEngine_Verify() {
	mr, err := miniredis.Run()
	if err != nil {
		panic(err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	var lastMessage string
	notifier := otpgate.NotifierFunc(func(_ context.Context, _, _, body string) error {
		lastMessage = body
		return nil
	})

	cfg := otpgate.DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1

	engine, err := otpgate.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithNotifier(notifier).
		Build()
	if err != nil {
		panic(err)
	}
	defer engine.Close()

	ctx := context.Background()
	signup, _ := engine.Signup(ctx, "Ada", "Lovelace", "Ada@Example.com", "analytical")
	fmt.Println(signup.Outcome, signup.Email)

	code := codePattern.FindString(lastMessage)
	verified, _ := engine.Verify(ctx, signup.Email, code)
	fmt.Println(verified.Outcome)

	login, _ := engine.Login(ctx, "ada@example.com", "analytical")
	fmt.Println(login.Outcome, login.Token == verified.Token)

	_, err = engine.Login(ctx, "ada@example.com", "wrong")
	fmt.Println(errors.Is(err, otpgate.ErrInvalidCredentials), otpgate.KindOf(err))

	// Output:
	// otp_sent ada@example.com
	// verified
	// logged_in true
	// true unauthorized
}

// ExampleKindOf shows how a transport layer maps failures to status codes.
func ExampleKindOf() {
	for _, err := range []error{otpgate.ErrAccountExists, otpgate.ErrCodeExpired, otpgate.ErrNotificationFailure} {
		fmt.Println(otpgate.KindOf(err))
	}
	// Output:
	// conflict
	// unauthorized
	// dependency
}

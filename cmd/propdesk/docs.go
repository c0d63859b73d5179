package main

//go:generate swag init -g cmd/propdesk/main.go -o docs

// @title           Propdesk API
// @version         0.1.0
// @description     Prop-firm challenge accounts, trades, strategies and risk monitoring.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

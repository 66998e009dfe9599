// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package helpdesk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/bcem/portal/internal/models"
)

// customersResponse is the paged GET /customers envelope.
type customersResponse struct {
	Embedded struct {
		Customers []models.Customer `json:"customers"`
	} `json:"_embedded"`
}

// createCustomerRequest is the POST /customers body.
type createCustomerRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// FindCustomerByEmail returns the first customer registered with email,
// or nil when there is none.
func (c *Client) FindCustomerByEmail(ctx context.Context, email string) (*models.Customer, error) {
	query := url.Values{}
	query.Set("email", email)

	data, err := c.do(ctx, "find_customer", http.MethodGet, "customers", query, nil)
	if err != nil {
		return nil, fmt.Errorf("find customer: %w", err)
	}

	var page customersResponse
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("decode customers response: %w", err)
	}

	if len(page.Embedded.Customers) == 0 {
		return nil, nil
	}

	customer := page.Embedded.Customers[0]
	if customer.Email == "" {
		customer.Email = email
	}
	return &customer, nil
}

// CreateCustomer registers a new customer.
func (c *Client) CreateCustomer(ctx context.Context, firstName, lastName, email string) (*models.Customer, error) {
	body := createCustomerRequest{
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
	}

	data, err := c.do(ctx, "create_customer", http.MethodPost, "customers", nil, body)
	if err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}

	customer := models.Customer{
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &customer); err != nil {
			return nil, fmt.Errorf("decode created customer: %w", err)
		}
	}
	if customer.Email == "" {
		customer.Email = email
	}

	return &customer, nil
}

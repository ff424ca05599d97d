package backend

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/shelterlink/internal/model"
)

// UserInfo はGET /user/user_info/{id} の結果。
type UserInfo struct {
	Role       model.Role
	Attributes map[string]string
}

type userInfoResponse struct {
	UserType string         `json:"userType"`
	UserData map[string]any `json:"userData"`
	Error    string         `json:"error,omitempty"`
}

// Registration はPOST /register/{donor|shelter} のリクエストボディ。
type Registration struct {
	UserID      string `json:"userID"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	ShelterName string `json:"shelter_name,omitempty"`
}

// GetUserInfo はユーザーの役割とプロフィール属性を取得する。
// レスポンスにerrorが含まれる場合はプロフィール未作成として404のRemoteErrorを返す。
func (c *Client) GetUserInfo(ctx context.Context, uid string) (*UserInfo, error) {
	const op = "get_user_info"

	var resp userInfoResponse
	if err := c.do(ctx, op, http.MethodGet, "/user/user_info/"+pathEscape(uid), nil, nil, &resp); err != nil {
		return nil, err
	}

	if resp.Error != "" {
		return nil, &RemoteError{Operation: op, StatusCode: http.StatusNotFound, Detail: resp.Error}
	}

	role, err := model.ParseRole(resp.UserType)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &UserInfo{
		Role:       role,
		Attributes: stringifyAttributes(resp.UserData),
	}, nil
}

// Register はバックエンドにプロフィールを作成する。
func (c *Client) Register(ctx context.Context, role model.Role, reg Registration) error {
	return c.do(ctx, "register_"+string(role), http.MethodPost, "/register/"+string(role), nil, reg, nil)
}

// UpdateProfile はプロフィール属性を更新し、更新後の属性を返す。
// バックエンドが属性を返さない場合は送信した属性をそのまま返す。
func (c *Client) UpdateProfile(ctx context.Context, role model.Role, uid string, attrs map[string]string) (map[string]string, error) {
	var resp map[string]any
	path := fmt.Sprintf("/forms/%s/%s", role, pathEscape(uid))
	if err := c.do(ctx, "update_profile", http.MethodPut, path, nil, attrs, &resp); err != nil {
		return nil, err
	}

	if data, ok := resp["userData"].(map[string]any); ok {
		return stringifyAttributes(data), nil
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out, nil
}

// DeleteProfile はバックエンドのプロフィールを削除する。
func (c *Client) DeleteProfile(ctx context.Context, role model.Role, uid string) error {
	path := fmt.Sprintf("/user/%s/%s", role, pathEscape(uid))
	return c.do(ctx, "delete_profile", http.MethodDelete, path, nil, nil, nil)
}

// stringifyAttributes はuserDataを文字列マップに変換する。nullの値は除外する。
func stringifyAttributes(data map[string]any) map[string]string {
	attrs := make(map[string]string, len(data))
	for k, v := range data {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			attrs[k] = val
		case float64:
			attrs[k] = fmt.Sprintf("%v", val)
		default:
			attrs[k] = fmt.Sprint(val)
		}
	}
	return attrs
}

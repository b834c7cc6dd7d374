package models

type RegistrationStepResponse struct {
	APIResponse
	DraftToken string `json:"draftToken,omitempty"`
}

type UserResponse struct {
	APIResponse
	User User `json:"user"`
}

type UsersResponse struct {
	APIResponse
	Users []User `json:"users"`
}

type ConversationsResponse struct {
	APIResponse
	Conversations []Conversation `json:"conversations"`
}

type MessagesResponse struct {
	APIResponse
	Messages []PrivateMessage `json:"messages"`
}

type MarkReadRequest struct {
	ContactID string `json:"contactId"`
}

type MarkReadResponse struct {
	APIResponse
	Updated int `json:"updated"`
}

type CreateProjectRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	GitHubURL    string `json:"githubUrl"`
	Technologies string `json:"technologies"`
}

type ProjectResponse struct {
	APIResponse
	Project Project `json:"project"`
}

type ProjectsResponse struct {
	APIResponse
	Projects []Project `json:"projects"`
}

type VoteRequest struct {
	Type VoteType `json:"type"`
}

type VoteResponse struct {
	APIResponse
	VoteResult
}

type CommentRequest struct {
	Text string `json:"text"`
}

type CommentResponse struct {
	APIResponse
	Comment Comment `json:"comment"`
}

type CommentsResponse struct {
	APIResponse
	Comments []Comment `json:"comments"`
}

type PushKeyResponse struct {
	APIResponse
	PublicKey string `json:"publicKey,omitempty"`
}

type AddUserRequest struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Area  string `json:"area,omitempty"`
}

type AddUserResponse struct {
	APIResponse
	User     User   `json:"user"`
	Password string `json:"password,omitempty"`
}

type RoomsResponse struct {
	APIResponse
	Rooms []RoomInfo `json:"rooms"`
}

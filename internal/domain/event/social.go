package event

import "context"

// [GUARD] every raw variant is an Event.
var (
	_ Event = PostCreated{}
	_ Event = UserFollowed{}
	_ Event = UserGainedFollower{}
	_ Event = LevelReached{}
	_ Event = CommentCreated{}
	_ Event = LikeGiven{}
	_ Event = ProfileUpdated{}
	_ Event = LoginStreak{}
)

type PostCreated struct {
	Meta
	PostID string
}

func NewPostCreated(userID, postID string) PostCreated {
	return PostCreated{Meta: NewMeta(userID), PostID: postID}
}

func (PostCreated) Name() Name { return NamePostCreated }
func (e PostCreated) Payload() map[string]any {
	return map[string]any{"userId": e.User, "postId": e.PostID}
}
func (e PostCreated) Accept(ctx context.Context, v Visitor) error { return v.VisitPostCreated(ctx, e) }

type UserFollowed struct {
	Meta
	FollowedUserID string
}

func NewUserFollowed(userID, followedUserID string) UserFollowed {
	return UserFollowed{Meta: NewMeta(userID), FollowedUserID: followedUserID}
}

func (UserFollowed) Name() Name { return NameUserFollowed }
func (e UserFollowed) Payload() map[string]any {
	return map[string]any{"userId": e.User, "followedUserId": e.FollowedUserID}
}
func (e UserFollowed) Accept(ctx context.Context, v Visitor) error {
	return v.VisitUserFollowed(ctx, e)
}

type UserGainedFollower struct {
	Meta
	FollowerID string
}

func NewUserGainedFollower(userID, followerID string) UserGainedFollower {
	return UserGainedFollower{Meta: NewMeta(userID), FollowerID: followerID}
}

func (UserGainedFollower) Name() Name { return NameUserGainedFollower }
func (e UserGainedFollower) Payload() map[string]any {
	return map[string]any{"userId": e.User, "followerId": e.FollowerID}
}
func (e UserGainedFollower) Accept(ctx context.Context, v Visitor) error {
	return v.VisitUserGainedFollower(ctx, e)
}

// LevelReached is both scorable and the trigger for level-up notifications.
type LevelReached struct {
	Meta
	Level int
}

func NewLevelReached(userID string, level int) LevelReached {
	return LevelReached{Meta: NewMeta(userID), Level: level}
}

func (LevelReached) Name() Name { return NameLevelReached }
func (e LevelReached) Payload() map[string]any {
	return map[string]any{"userId": e.User, "level": e.Level}
}
func (e LevelReached) Accept(ctx context.Context, v Visitor) error {
	return v.VisitLevelReached(ctx, e)
}

type CommentCreated struct {
	Meta
	CommentID string
	PostID    string
}

func NewCommentCreated(userID, commentID, postID string) CommentCreated {
	return CommentCreated{Meta: NewMeta(userID), CommentID: commentID, PostID: postID}
}

func (CommentCreated) Name() Name { return NameCommentCreated }
func (e CommentCreated) Payload() map[string]any {
	return map[string]any{"userId": e.User, "commentId": e.CommentID, "postId": e.PostID}
}
func (e CommentCreated) Accept(ctx context.Context, v Visitor) error {
	return v.VisitCommentCreated(ctx, e)
}

type LikeGiven struct {
	Meta
	PostID string
}

func NewLikeGiven(userID, postID string) LikeGiven {
	return LikeGiven{Meta: NewMeta(userID), PostID: postID}
}

func (LikeGiven) Name() Name { return NameLikeGiven }
func (e LikeGiven) Payload() map[string]any {
	return map[string]any{"userId": e.User, "postId": e.PostID}
}
func (e LikeGiven) Accept(ctx context.Context, v Visitor) error { return v.VisitLikeGiven(ctx, e) }

type ProfileUpdated struct {
	Meta
}

func NewProfileUpdated(userID string) ProfileUpdated {
	return ProfileUpdated{Meta: NewMeta(userID)}
}

func (ProfileUpdated) Name() Name { return NameProfileUpdated }
func (e ProfileUpdated) Payload() map[string]any {
	return map[string]any{"userId": e.User}
}
func (e ProfileUpdated) Accept(ctx context.Context, v Visitor) error {
	return v.VisitProfileUpdated(ctx, e)
}

type LoginStreak struct {
	Meta
	StreakDays int
}

func NewLoginStreak(userID string, streakDays int) LoginStreak {
	return LoginStreak{Meta: NewMeta(userID), StreakDays: streakDays}
}

func (LoginStreak) Name() Name { return NameLoginStreak }
func (e LoginStreak) Payload() map[string]any {
	return map[string]any{"userId": e.User, "streakDays": e.StreakDays}
}
func (e LoginStreak) Accept(ctx context.Context, v Visitor) error {
	return v.VisitLoginStreak(ctx, e)
}
